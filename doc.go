// Shopchat - A Stateful Shopping-Assistant Chat Service in Go
//
// Shopchat routes each user message through a typed workflow graph: an intent
// recognizer classifies the message, conditional edges dispatch it to one of
// four specialized model-backed agents, and explicit reducers fold every
// node's partial result into the running state. Sessions, message history,
// per-step checkpoints and a long-term audit memory are persisted behind
// pluggable stores.
//
// # Quick Start
//
// Run the HTTP server locally:
//
//	export OPENAI_API_KEY=sk-...
//	go run ./cmd/server
//
// Send a message:
//
//	curl -X POST localhost:8080/chat \
//		-d '{"message": "show me running shoes under $100"}'
//
// The response carries the session identifier, the node path the message
// took, the classified intent and the terminal agent. Subsequent requests
// with the same session_id continue the conversation.
//
// # Packages
//
//   - workflow: the orchestration graph, its state schema and the six agents
//   - graph: the generic typed state machine the workflow compiles into
//   - chat: the service boundary tying the workflow to session persistence
//   - session: durable sessions and history (DynamoDB, memory, fallback)
//   - memstore: the append-only long-term audit memory (memory, Redis)
//   - store: per-step checkpoint stores (memory, SQLite, Redis, Postgres)
//   - log: the logging interface shared by all of the above
//
// # Deployment
//
// cmd/server serves the API over HTTP for local development and containers;
// cmd/lambda serves the same API behind AWS API Gateway. Both are configured
// entirely through environment variables; unset backends degrade to their
// in-process implementations.
package shopchat // import "shopchat"
