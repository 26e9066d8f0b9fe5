package symbol

import (
	"bufio"
	"debug/elf"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

var (
	exeOnce sync.Once
	exePath string

	slideOnce sync.Once
	slideVal  uint64
)

// Executable returns the resolved path of the running executable, cached for
// the process lifetime. Empty when the platform cannot tell.
func Executable() string {
	exeOnce.Do(func() {
		p, err := os.Executable()
		if err != nil {
			return
		}
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			p = resolved
		}
		exePath = p
	})
	return exePath
}

// Slide returns the difference between the executable's load base and its
// link-time base. Subtracting it from a raw return address yields the
// module-relative address that matches link-time symbol data. Zero for
// non-relocated binaries and on platforms where it cannot be determined.
func Slide() uint64 {
	slideOnce.Do(func() {
		if runtime.GOOS != "linux" {
			return
		}
		slideVal = linuxSlide(Executable())
	})
	return slideVal
}

func linuxSlide(exe string) uint64 {
	if exe == "" {
		return 0
	}
	loadBase := mapsImageBase(exe)
	if loadBase == 0 {
		return 0
	}
	linkBase, ok := elfLinkBase(exe)
	if !ok || linkBase > loadBase {
		return 0
	}
	return loadBase - linkBase
}

// mapsImageBase finds the offset-zero mapping of the executable in
// /proc/self/maps.
func mapsImageBase(exe string) uint64 {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return 0
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		// "start-end perms offset dev inode path"
		if !strings.HasSuffix(line, exe) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		off, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil || off != 0 {
			continue
		}
		dash := strings.IndexByte(fields[0], '-')
		if dash < 0 {
			continue
		}
		start, err := strconv.ParseUint(fields[0][:dash], 16, 64)
		if err != nil {
			continue
		}
		return start
	}
	return 0
}

// elfLinkBase reads the link-time address of the first loadable segment.
func elfLinkBase(exe string) (uint64, bool) {
	f, err := elf.Open(exe)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	for _, p := range f.Progs {
		if p.Type == elf.PT_LOAD {
			return p.Vaddr - p.Off, true
		}
	}
	return 0, false
}
