// Package notify delivers due reminders to the people who care about them.
//
// A Publisher receives one call per fired reminder, addressed by owner id.
//
// # Implementations
//
// Local puts the event on the in-process bus topic "owner:<id>", where
// websocket sessions of that owner pick it up. Redis does the same across
// instances: Publish goes to a redis channel and Run relays every instance's
// events back into its local bus. Delivery is the asynchronous pipeline to
// external sinks (Telegram chats, email) with a bounded queue, a worker pool,
// rate limiting, retries and dedup. Fanout combines them.
//
// Delivery is at-least-once for connected subscribers. Nothing is replayed
// to subscribers that connect later.
package notify
