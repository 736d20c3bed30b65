// Package balproc and its sub-packages implement a balance processor: a middleware service that keeps a store of
// tracked account balances in sync with an ethereum ledger.
/*
Architecture

Block explorers publish a notification for every transaction of interest to the message broker. The balance processor
(package processor) consumes those notifications and, for each one:

1) reads the transaction and its receipt from the ledger node and decodes the token events of the receipt logs
 (package lib/block/events),

2) extracts the addresses involved, each with the token contracts it appeared under, and keeps the ones tracked in the
 store,

3) reads their current ether and token balances from the ledger, bounded by a shared concurrency limit and a timeout
 per query,

4) writes the balances to the store, one atomic update per account, and

5) publishes one balance message per updated account so downstream services can notify their users.

Notifications are acknowledged even when processing fails: the processor is a best-effort balance cache, not a ledger
of record. Failing to publish a balance message, or losing the broker or store connection, terminates the process so
it can be restarted by its supervisor.

The message broker (package lib/msg), the store (package lib/store) and the ledger client (package lib/block) are
product agnostic layers configured via a JSON config file or BALPROC_* environment variables at startup (package
lib/config). AMQP and Redis brokers, and MongoDB, PostgreSQL and in-memory stores are provided.

The service is started running cmd/balproc/main.go. It can be monitored via a Prometheus API by setting the flag "-m"
at startup, or through the status API (package status) when statusPort is configured.
*/
package balproc
