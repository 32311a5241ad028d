//go:build unix

package listing

import (
	"io/fs"
	"os/user"
	"strconv"
	"sync"
	"syscall"
)

var (
	nameCacheMu sync.Mutex
	userNames   = map[uint32]string{}
	groupNames  = map[uint32]string{}
)

func ownership(info fs.FileInfo) (owner, group string, links int) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "-", "-", 1
	}
	return lookupUser(st.Uid), lookupGroup(st.Gid), int(uint64(st.Nlink))
}

func lookupUser(uid uint32) string {
	nameCacheMu.Lock()
	defer nameCacheMu.Unlock()
	if name, ok := userNames[uid]; ok {
		return name
	}
	id := strconv.FormatUint(uint64(uid), 10)
	name := id
	if u, err := user.LookupId(id); err == nil && u.Username != "" {
		name = u.Username
	}
	userNames[uid] = name
	return name
}

func lookupGroup(gid uint32) string {
	nameCacheMu.Lock()
	defer nameCacheMu.Unlock()
	if name, ok := groupNames[gid]; ok {
		return name
	}
	id := strconv.FormatUint(uint64(gid), 10)
	name := id
	if g, err := user.LookupGroupId(id); err == nil && g.Name != "" {
		name = g.Name
	}
	groupNames[gid] = name
	return name
}
