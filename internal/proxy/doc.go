// Package proxy forwards requests to backends over a shared keep-alive
// transport. It applies the forwarding header rewrite set, streams request
// and response bodies with bounded memory, retries connect-class failures
// once against a different backend, and reports one outcome per attempt to
// the registry.
package proxy
