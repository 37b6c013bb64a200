package vulkan

var end = "\x00"
var endChar byte = '\x00'

// safeString null terminates s for the C side.
func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	ret := make([]string, len(list))
	for i := range list {
		ret[i] = safeString(list[i])
	}
	return ret
}
