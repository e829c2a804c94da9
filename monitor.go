/*
Copyright © 2024 the Cate authors.
This file is part of Cate.

Cate is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

Cate is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with Cate.  If not, see <http://www.gnu.org/licenses/>.
*/

package cate

// A Monitor receives progress reports from long-running operations and
// carries external cancellation requests back to them. Operations check
// Cancelled between discrete sub-steps, never mid-array-operation, and
// abort with ErrCancelled.
type Monitor interface {
	// Start begins a unit of work with the given label and total amount.
	Start(label string, total float64)
	// Progress reports that work units have been completed since the last
	// call, with an optional message.
	Progress(work float64, msg string)
	// Done marks the work as complete.
	Done()
	// Cancelled reports whether an external cancellation was requested.
	Cancelled() bool
}

// NullMonitor is a Monitor that does nothing and is never cancelled.
type NullMonitor struct{}

func (NullMonitor) Start(string, float64)    {}
func (NullMonitor) Progress(float64, string) {}
func (NullMonitor) Done()                    {}
func (NullMonitor) Cancelled() bool          { return false }

// monitorOrNull substitutes a NullMonitor for a nil monitor so callers can
// pass nil when they do not care about progress.
func monitorOrNull(m Monitor) Monitor {
	if m == nil {
		return NullMonitor{}
	}
	return m
}

// Child returns a monitor that maps its own work onto a fixed share of its
// parent's, so delegated sub-work reports proportionally.
func Child(parent Monitor, parentWork float64) Monitor {
	return &childMonitor{parent: monitorOrNull(parent), parentWork: parentWork}
}

type childMonitor struct {
	parent     Monitor
	parentWork float64
	total      float64
	reported   float64
}

func (c *childMonitor) Start(label string, total float64) {
	c.total = total
	c.reported = 0
}

func (c *childMonitor) Progress(work float64, msg string) {
	if c.total <= 0 {
		return
	}
	c.parent.Progress(work/c.total*c.parentWork, msg)
	c.reported += work
}

func (c *childMonitor) Done() {
	if c.total > 0 && c.reported < c.total {
		c.parent.Progress((c.total-c.reported)/c.total*c.parentWork, "")
		c.reported = c.total
	}
}

func (c *childMonitor) Cancelled() bool { return c.parent.Cancelled() }
