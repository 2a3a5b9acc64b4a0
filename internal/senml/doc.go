// Package senml encodes and decodes property values as SenML records
// serialized with CBOR, the wire format the Arduino IoT Cloud expects on
// property topics.
//
// # Wire format
//
// A payload is a CBOR array of maps. Protocol v1 labels each map with text
// keys in this order:
//
//	bt  base time (integer, smallest CBOR width)
//	n   name
//	bn  base name, "urn:uuid:<device id>" (only when a device id is given)
//	v | vs | vb  numeric, string or boolean value
//
// Protocol v2 carries the same fields with the integer labels of RFC 8428
// (bt=-3, n=0, bn=-2, v=2, vs=3, vb=4).
//
// # Numbers
//
// Integral numbers whose magnitude fits in 2^53 are written as the smallest
// CBOR integer that holds them. Every other number is written as an IEEE 754
// double (major type 7, 0xFB). Go integer types are always written as
// integers. This selection is part of the wire contract; the receiving
// service compares payloads byte for byte.
//
// # Unsupported values
//
// Values that are not a string, a bool or a Go numeric type are dropped: the
// record is still emitted, with no value field. Callers that need strict
// behaviour should validate values before encoding.
//
// # Usage
//
//	payload, err := senml.EncodeProperty("", "temperature", 21.5, 0, senml.ProtocolV1)
//	records, err := senml.Decode(payload)
package senml
