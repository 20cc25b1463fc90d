// Package job defines the types shared by the gateway, the dispatcher and the
// mode handlers: the inbound job descriptor, the handler contract and the
// uniform response envelope.
package job
