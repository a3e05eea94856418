// Package feeds maps oracle invitations to price feeds and decodes the
// canonical price each feed publishes.
package feeds
