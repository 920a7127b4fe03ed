// Package events carries writing progress notifications.
//
// Workers and control actions emit an Event after every job resolution and
// status change. The in-memory emitter dispatches to in-process handlers (the
// runtime's wake-up handler and the stall watchdog); the redis and rabbitmq
// publishers forward the same events to out-of-process observers such as a UI
// gateway. MultiEmitter fans one event out to several emitters.
package events
