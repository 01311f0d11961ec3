// Package integration runs the stores, checkout and outbox relay against real
// Postgres and RabbitMQ containers. Build with -tags integration.
package integration
