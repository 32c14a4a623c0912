package toolchain

import (
	"runtime"
	"strings"
)

// goArch maps GOARCH values that differ from their Debian name.
var goArch = map[string]string{
	"386":      "i386",
	"arm":      "armhf",
	"ppc64le":  "ppc64el",
	"mipsle":   "mipsel",
	"mips64le": "mips64el",
}

// DebianArch converts a target to a Debian architecture name. The target is
// either a GOARCH value ("amd64", "arm") or a target triple
// ("aarch64-unknown-linux-gnu"); see https://wiki.debian.org/Multiarch/Tuples.
// Unknown values are returned unchanged.
func DebianArch(target string) string {
	if !strings.Contains(target, "-") {
		if a, ok := goArch[target]; ok {
			return a
		}
		return target
	}
	parts := strings.Split(target, "-")
	arch, abi := parts[0], parts[len(parts)-1]
	switch {
	case arch == "aarch64":
		return "arm64"
	case arch == "mips64" && abi == "gnuabin32":
		return "mipsn32"
	case arch == "mips64el" && abi == "gnuabin32":
		return "mipsn32el"
	case arch == "mipsisa32r6":
		return "mipsr6"
	case arch == "mipsisa32r6el":
		return "mipsr6el"
	case arch == "mipsisa64r6" && abi == "gnuabi64":
		return "mips64r6"
	case arch == "mipsisa64r6" && abi == "gnuabin32":
		return "mipsn32r6"
	case arch == "mipsisa64r6el" && abi == "gnuabi64":
		return "mips64r6el"
	case arch == "mipsisa64r6el" && abi == "gnuabin32":
		return "mipsn32r6el"
	case arch == "powerpc" && abi == "gnuspe":
		return "powerpcspe"
	case arch == "powerpc64":
		return "ppc64"
	case arch == "powerpc64le":
		return "ppc64el"
	case arch == "i586", arch == "i686", arch == "x86":
		return "i386"
	case arch == "x86_64" && abi == "gnux32":
		return "x32"
	case arch == "x86_64":
		return "amd64"
	case strings.HasPrefix(arch, "arm") && strings.HasSuffix(abi, "hf"):
		return "armhf"
	case strings.HasPrefix(arch, "arm"):
		return "armel"
	}
	return arch
}

// HostArch is the Debian architecture of the running binary.
func HostArch() string {
	return DebianArch(runtime.GOARCH)
}
