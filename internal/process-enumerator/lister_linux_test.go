//go:build linux
// +build linux

package process_enumerator

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func writeStat(root, pid, stat string) {
	dir := filepath.Join(root, pid)
	Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644)).To(Succeed())
}

var _ = Describe("ProcfsLister", func() {
	var root string

	BeforeEach(func() {
		root = GinkgoT().TempDir()
	})

	It("reads controlled and uncontrolled processes", func() {
		writeStat(root, "1234", "1234 (my proc) S 1 1234 1234 34816 1234 4194560 100 0 0 0 250 50 0 0 20 0 1 0 100 1000000 500 18446744073709551615\n")
		writeStat(root, "77", "77 (kworker/0:1) I 2 0 0 0 -1 69238880 0 0 0 0 1 2 0 0 20 0 1 0 5 0 0 18446744073709551615\n")
		Expect(os.MkdirAll(filepath.Join(root, "self"), 0o755)).To(Succeed())

		procs, err := ProcfsLister{Root: root}.ListProcesses(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(procs).To(HaveLen(2))

		byPID := map[int]int{}
		for i, p := range procs {
			byPID[p.PID] = i
		}
		controlled := procs[byPID[1234]]
		Expect(controlled.Name).To(Equal("my proc"))
		Expect(controlled.SessionID).To(Equal(1234))
		Expect(controlled.CPUTime).To(Equal(3 * time.Second))
		Expect(controlled.WorkingSet).To(Equal(int64(500 * os.Getpagesize())))
		Expect(controlled.Owner).NotTo(BeEmpty())

		Expect(procs[byPID[77]].SessionID).To(Equal(0))
	})

	It("reports broken entries without dropping the others", func() {
		writeStat(root, "10", "10 (ok) S 1 10 10 34816 10 0 0 0 0 0 1 1 0 0 20 0 1 0 1 1 1 0\n")
		writeStat(root, "11", "11 (broken) S 1\n")

		procs, err := ProcfsLister{Root: root}.ListProcesses(context.Background())
		Expect(err).To(MatchError(ContainSubstring("pid 11")))
		Expect(procs).To(HaveLen(1))
		Expect(procs[0].PID).To(Equal(10))
	})
})
