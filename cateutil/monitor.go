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

package cateutil

import (
	"github.com/cheggaaa/pb/v3"

	cate "github.com/CCI-Tools/cate-sub000"
)

// monitor returns a progress monitor for long-running operations,
// honoring the quiet flag.
func monitor() cate.Monitor {
	if Cfg.GetBool("quiet") {
		return cate.NullMonitor{}
	}
	return &barMonitor{}
}

// barMonitor reports progress to a terminal progress bar. Fractional
// work reported by child monitors is accumulated and flushed to the bar
// in whole increments.
type barMonitor struct {
	bar     *pb.ProgressBar
	pending float64
}

func (b *barMonitor) Start(label string, total float64) {
	if b.bar != nil {
		b.bar.Finish()
	}
	b.pending = 0
	b.bar = pb.StartNew(int(total))
}

func (b *barMonitor) Progress(work float64, msg string) {
	if b.bar == nil {
		return
	}
	b.pending += work
	for b.pending >= 1 {
		b.bar.Increment()
		b.pending--
	}
}

func (b *barMonitor) Done() {
	if b.bar != nil {
		b.bar.Finish()
		b.bar = nil
		b.pending = 0
	}
}

func (b *barMonitor) Cancelled() bool { return false }
