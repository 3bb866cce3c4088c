// Package router turns raw stream frames into typed events and fans them
// out to channel listeners. It sits between the connection layer, which
// hands it every channel-scoped frame, and the subscription registry,
// which owns the listeners and their delivery buffers.
package router
