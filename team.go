// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

// team is a compile-time static authorship record. It carries no runtime
// behaviour and is never read by the allocator itself.
type team struct {
	name    string
	members []member
}

type member struct {
	name  string
	email string
}

var teamInfo = team{
	name: "segalloc",
	members: []member{
		{name: "Zifeng Liang", email: "zifeng@example.invalid"},
	},
}
