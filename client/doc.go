// Package client implements the peer side of the Sendspin protocol: a
// connecting participant that takes one or more roles (player,
// controller, metadata, artwork, visualizer, source) against a server.
//
// A Client dials the server, performs the hello handshake, keeps a
// Kalman time filter locked onto the server clock through an adaptive
// sync loop, and dispatches inbound control messages and binary frames
// to registered listeners. Player callers schedule each audio chunk at
// ComputePlayTime(chunk timestamp); source callers upload capture
// through SendSourceAudioChunk.
//
//	c, err := client.New("kitchen", "Kitchen Speaker",
//	    []wire.Role{wire.RolePlayer}, client.Options{
//	        PlayerSupport: &wire.PlayerSupport{...},
//	    })
//	unsub := c.AddAudioChunkListener(func(ts int64, pcm []byte, f audio.Format) {
//	    out.ScheduleAt(c.ComputePlayTime(ts), pcm)
//	})
//	err = c.Connect(ctx, "ws://amp.local:8927/sendspin")
package client
