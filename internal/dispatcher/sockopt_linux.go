package dispatcher

// SO_REUSEPORT has no portable name in the standard syscall package; its
// value is stable across Linux architectures (3.9+).
const unixSOReuseport = 15
