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

package main

import (
	"fmt"
	"os"

	"github.com/CCI-Tools/cate-sub000/cateutil"
)

func main() {
	if err := cateutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
