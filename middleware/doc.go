/*
	Package middleware defines the service contract shared by the client core
	and every layer stacked around it.

	A Service answers three operations: Call, Batch and Notify. Each returns a
	Future immediately; nothing blocks the caller until it waits on the future.
	Response types are type parameters, so a stack only composes if every layer
	agrees on them. RPCService is the instantiation used by the client.

	A Builder collects layers in order. The first layer added is the outermost
	one, the last one wraps the core directly.

	Either and EitherLayer pick one of two implementations at configuration
	time and forward every operation to it, which lets a single builder field
	hold, for example, either the Identity layer or a Logger layer.
*/
package middleware
