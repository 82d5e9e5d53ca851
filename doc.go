// Package yarl39 provides a throughput-governing call pump. Callers wrap a
// backend call in a Pump, enqueue invocations tagged with a declared size,
// and the pump dispatches them so that the total size dispatched in any
// trailing period never exceeds a configured budget.
//
// Work enters through two lanes: Feed appends to the back of the ordered
// background lane, Immed jumps ahead of all queued background work for
// latency-sensitive calls. Both return a Handle that the caller can await
// individually with Result or in bulk with Gather. Closing the pump drains
// every queued and in-flight call before releasing resources.
package yarl39
