// Package cli implements the netmon command-line interface.
//
// Commands are Cobra commands whose RunE delegates to a plain function
// taking its flags as arguments, so the logic can be tested without a
// terminal:
//
//	netmon run                 collect from every device until interrupted
//	netmon connect <id>        install the service key on one device
//	netmon watch <id>          poll one device in a live terminal view
//	netmon device list|add|set|suspend|resume
//	netmon keygen              create the service key pair
//	netmon status              show the tasks of a running `netmon run`
//	netmon version
//
// Every command loads netmon.yaml through config.LoadOrDefault and builds
// its collaborators (device store, SSH dialer, sinks, logger) from it.
package cli
