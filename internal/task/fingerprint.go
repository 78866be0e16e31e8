package task

import (
	"fmt"
	"strconv"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the definition of a task tree: names, commands,
// dependencies, flags and shape. Runtime state is not included, so the same
// definition always yields the same fingerprint.
func Fingerprint(root *Task) string {
	hasher := blake3.New()
	writeTask(hasher, root)
	return fmt.Sprintf("%x", hasher.Sum(nil))[:16]
}

func writeTask(hasher *blake3.Hasher, t *Task) {
	field := func(s string) {
		_, _ = hasher.Write([]byte(strconv.Itoa(len(s)) + ":" + s))
	}

	field(t.Name)
	field(t.Meta.Package)
	field(t.Meta.Step)
	field(t.Meta.Command)
	field(t.Meta.Dir)
	field(strconv.Itoa(t.weight()))
	field(strconv.FormatBool(t.Exclusive))
	field(strconv.FormatBool(t.Serial))
	field(strconv.FormatBool(t.Bail))
	field(strconv.FormatBool(t.Action != nil))
	field(strconv.Itoa(len(t.Dependencies)))
	for _, d := range t.Dependencies {
		field(d)
	}
	field(strconv.Itoa(len(t.Children)))
	for _, c := range t.Children {
		writeTask(hasher, c)
	}
}
