/*
Package ipsync keeps a DNS A record synchronized with the dynamically-assigned
public IP address of the host it runs on.

Usage will always start with [ipsync.New],
which returns a *Client.
New requires the domain name to manage, the ID of the hosted zone containing
its record, and a record client option such as [UsingRoute53] or
[UsingCloudflare].
Additional client configuration options are listed in the docs for New.

Call [Client.Run] to reconcile forever on an interval,
or [Client.Reconcile] for a single pass.
*/
package ipsync
