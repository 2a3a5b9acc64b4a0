// Package influxdb writes Arduino IoT Cloud property values to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, property point writing and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
//	err = cloudClient.Subscribe(ctx, cloud.Topics{}.PropertyOutput(thingID),
//	    client.Handler(logger))
//
// # Schema
//
// Every value is a point in the "property" measurement, tagged with
// thing_id and name. Numeric values use the float field "value", booleans
// "value_bool" and strings "value_string".
//
// # Error Handling
//
// Writes are non-blocking and batched (batch_size, flush_interval); batch
// failures arrive through the SetOnError callback. Connection and health
// check errors are returned directly.
package influxdb
