// Package ekiden is a client for the Ekiden trading gateway. It bundles
// the REST client, the signed-session manager, and the streaming
// connection behind one Client.
//
// A minimal streaming consumer:
//
//	cfg := ekiden.ProductionConfig()
//	cfg.PrivateKey = os.Getenv("EKIDEN_PRIVATE_KEY")
//
//	client, err := ekiden.NewClient(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close(context.Background())
//
//	sub, err := client.SubscribeOrderbook(marketAddr)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := client.ConnectStream(ctx); err != nil {
//		log.Fatal(err)
//	}
//	for ev := range sub.Events() {
//		// ev.Kind selects the payload: ev.Snapshot, ev.Delta, ...
//	}
package ekiden
