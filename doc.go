// Copyright 2016 Commonwealth of Australia, Bureau of Meteorology.
// Licensed under the Apache License, Version 2.0.

/*
Package rapic implements the Rapic radar protocol.

Rapic is a line-oriented mixed binary/ASCII streaming protocol used by
weather radar transmitters to ship polar volume scan data to consumers.
The package provides a streaming framer over a growable byte buffer, a
non-blocking client connection manager, an accept-only listen server, and
codecs for each message type including the compact ray encodings used by
radar scan messages.

The most basic synchronous usage sequence is:

	con := rapic.NewClient(rapic.DefaultMaxBufferSize, rapic.DefaultKeepalivePeriod)
	con.AddFilter(-1, "ANY")
	if err := con.Connect("myhost", "15555"); err != nil {
		log.Fatal(err)
	}

	for con.Connected() {
		// wait for data to arrive
		con.Poll(rapic.DefaultPollTimeout)

		// process data received from the remote host
		for {
			more, err := con.ProcessTraffic()
			if err != nil {
				log.Fatal(err)
			}

			// dequeue each completed message
			for {
				mt, ok, err := con.Dequeue()
				if err != nil {
					log.Fatal(err)
				}
				if !ok {
					break
				}

				// decode and handle the message types we care about
				if mt == rapic.MessageScan {
					var scan rapic.Scan
					if err := con.Decode(&scan); err != nil {
						log.Print(rapic.FormatError(err))
					}
					// ...
				}
			}

			if !more {
				break
			}
		}
	}

For asynchronous usage, PollableFD, PollRead and PollWrite expose what a
multiplexed poller needs to wait on the connection alongside other I/O
sources.

All operations on a given Client or Server must be performed by a single
goroutine; the package provides no internal locking.
*/
package rapic
