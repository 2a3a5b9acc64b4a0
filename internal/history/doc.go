// Package history keeps a local SQLite record of property values seen on
// Arduino IoT Cloud thing topics.
//
// A Store is fed from a cloud subscription through Store.Handler and can be
// queried newest-first per thing and property. Entries older than the
// configured retention are removed with Prune.
//
//	store := history.NewStore(db.DB)
//	err := client.Subscribe(ctx, cloud.Topics{}.PropertyOutput(thingID),
//	    store.Handler(ctx, logger))
package history
