// Package schedule runs recurring background jobs for devices that animate
// on their own, such as light beams.
//
// All jobs share one period: ActionPeriod multiplied by the number of jobs,
// stretched to the summed job cost when the jobs need longer. Jobs run
// sequentially on the queue goroutine. Any change to the job set restarts
// the period. Pause/Resume let a device with priority (a track disconnect)
// hold every other job while it is energised.
package schedule
