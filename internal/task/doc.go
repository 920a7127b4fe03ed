// Package task runs writing projects in the background. A fixed pool of
// workers consumes project ids from a de-duplicating queue and drives each
// project one step at a time until its run stops, so at most one loop per
// project is active in the process. Tickers rediscover active projects and
// return expired job leases to the queue.
package task
