package testutil

import (
	"io/ioutil"
	"os"

	"github.com/smartystreets/goconvey/convey"
)

/*
	Decorates a goconvey test with a scratch dir, which is removed again
	when the enclosing Convey block resets.

	See also https://github.com/smartystreets/goconvey/wiki/Decorating-tests-to-provide-common-logic
*/
func WithTmpdir(fn func(c convey.C, dir string)) func(c convey.C) {
	return func(c convey.C) {
		tmpdir, err := ioutil.TempDir("", "cohort-test-")
		if err != nil {
			panic(err)
		}
		convey.Reset(func() {
			os.RemoveAll(tmpdir)
		})
		fn(c, tmpdir)
	}
}
