// Package reminder is the notification scheduler.
//
// Concepts:
//   - Evaluator: one pass over every owner's settings. It runs the task-due,
//     daily, weekly, monthly and custom checks in that order and fans each due
//     occurrence out to every available channel.
//   - Ledger: the set of occurrence keys already fired. A key is reserved before
//     delivery so overlapping ticks cannot both deliver it.
//   - Service: owns the cron runner that ticks the Evaluator at a constant
//     interval, plus one synchronous tick on Start.
//
// All wall-clock comparisons use the process's local time zone.
package reminder
