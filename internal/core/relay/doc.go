// Package relay implements the relay coordinator (spec §4.8, component
// C8): the client-side relay-client list fill timer, the server-side
// hosted-network registry, and virtual (relayed) connections dialed by
// sending a tunnel request over an established relay connection.
package relay
