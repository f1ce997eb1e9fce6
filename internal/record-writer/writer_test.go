package record_writer

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cybozu-go/avd-usage-collector/internal/common"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var capturedAt = time.Date(2025, 11, 8, 9, 30, 15, 0, time.UTC)

func observations() []common.ProcessObservation {
	return []common.ProcessObservation{
		{
			CapturedAt:  capturedAt,
			HostName:    "avd-host-0",
			SessionName: "rdp-tcp 3",
			ProcessRecord: common.ProcessRecord{
				ImageName: "notepad.exe", PID: 1234, SessionID: 5, MemoryBytes: 20000000, CPUTimeSeconds: 3, Username: "jdoe",
			},
		},
		{
			CapturedAt:  capturedAt,
			HostName:    "avd-host-0",
			SessionName: "console",
			ProcessRecord: common.ProcessRecord{
				ImageName: "explorer.exe", PID: 88, SessionID: 1, MemoryBytes: 1, CPUTimeSeconds: 0, Username: common.NoUserName,
			},
		},
	}
}

// decode splits a file by line terminator and delimiter.
func decode(data []byte) [][]string {
	res := make([][]string, 0)
	text := string(data)
	Expect(strings.HasSuffix(text, LineTerminator) || text == "").To(BeTrue())
	for _, line := range strings.Split(strings.TrimSuffix(text, LineTerminator), LineTerminator) {
		if line == "" {
			continue
		}
		res = append(res, strings.Split(line, Delimiter))
	}
	return res
}

func listDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	Expect(err).NotTo(HaveOccurred())
	names := make([]string, 0)
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

var _ = Describe("Encode", func() {
	It("round-trips field for field in order", func() {
		obs := observations()
		got := decode(Encode(common.Rows(obs)))
		Expect(got).To(HaveLen(len(obs)))
		for i := range obs {
			Expect(got[i]).To(Equal(obs[i].Fields()))
		}
	})

	It("uses CRLF and no byte order mark", func() {
		data := Encode(common.Rows(observations()))
		Expect(data[:3]).NotTo(Equal([]byte{0xEF, 0xBB, 0xBF}))
		Expect(strings.Count(string(data), "\r\n")).To(Equal(2))
		Expect(strings.Count(string(data), "\n")).To(Equal(2))
	})

	It("replaces delimiters and line breaks inside a field", func() {
		obs := observations()[:1]
		obs[0].Username = "doe,\r\njohn"
		got := decode(Encode(common.Rows(obs)))
		Expect(got).To(HaveLen(1))
		Expect(got[0]).To(HaveLen(9))
		Expect(got[0][4]).To(Equal("doe  john"))
	})
})

var _ = Describe("Writer", func() {
	var (
		dir  string
		w    *Writer
		logs *observer.ObservedLogs
		now  time.Time
	)

	BeforeEach(func() {
		dir = filepath.Join(GinkgoT().TempDir(), "Processes")
		var core zapcore.Core
		core, logs = observer.New(zapcore.InfoLevel)
		w = NewWriter(dir, "processes", zap.New(core))
		now = time.Date(2025, 11, 8, 10, 30, 5, 0, time.Local)
		w.Now = func() time.Time { return now }
	})

	It("creates the directory and names the file by minute", func() {
		path, err := w.Write(common.Rows(observations()))
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(dir, "processes-20251108-1030.csv")))

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(HavePrefix("2025-11-08T09:30:15Z,avd-host-0,notepad.exe,1234,jdoe,rdp-tcp 3,5,20000000,3\r\n"))
	})

	It("overwrites within the same minute", func() {
		_, err := w.Write(common.Rows(observations()))
		Expect(err).NotTo(HaveOccurred())

		now = now.Add(40 * time.Second)
		path, err := w.Write(common.Rows(observations()[:1]))
		Expect(err).NotTo(HaveOccurred())

		Expect(listDir(dir)).To(ConsistOf("processes-20251108-1030.csv"))
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(decode(data)).To(HaveLen(1))
	})

	It("writes a new file in the next minute", func() {
		_, err := w.Write(common.Rows(observations()))
		Expect(err).NotTo(HaveOccurred())
		now = now.Add(time.Minute)
		_, err = w.Write(common.Rows(observations()))
		Expect(err).NotTo(HaveOccurred())
		Expect(listDir(dir)).To(ConsistOf("processes-20251108-1030.csv", "processes-20251108-1031.csv"))
	})

	It("writes an empty file when nothing was observed", func() {
		path, err := w.Write(nil)
		Expect(err).NotTo(HaveOccurred())
		info, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Size()).To(BeZero())
	})

	It("reports an uncreatable directory", func() {
		blocker := filepath.Join(GinkgoT().TempDir(), "file")
		Expect(os.WriteFile(blocker, []byte("x"), 0o644)).To(Succeed())
		w = NewWriter(filepath.Join(blocker, "Processes"), "processes", w.logger)

		path, err := w.Write(common.Rows(observations()))
		Expect(err).To(MatchError(ErrWrite))
		Expect(path).To(HavePrefix(blocker))
		failures := logs.FilterMessage("failed to write records").All()
		Expect(failures).To(HaveLen(1))
		Expect(failures[0].ContextMap()).To(HaveKeyWithValue("path", path))
	})

	It("leaves no temporary file behind", func() {
		_, err := w.Write(common.Rows(observations()))
		Expect(err).NotTo(HaveOccurred())
		for _, name := range listDir(dir) {
			Expect(name).NotTo(HaveSuffix(".tmp"))
		}
	})

	It("makes the output readable by other accounts", func() {
		if runtime.GOOS == "windows" {
			Skip("file modes are not enforced on Windows")
		}
		path, err := w.Write(common.Rows(observations()))
		Expect(err).NotTo(HaveOccurred())
		info, err := os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.Mode().Perm()).To(Equal(FileMode))
	})

	It("syncs the directory after the rename", func() {
		synced := make([]string, 0)
		orig := syncDir
		DeferCleanup(func() { syncDir = orig })
		syncDir = func(d string) {
			_, err := os.Stat(filepath.Join(d, "processes-20251108-1030.csv"))
			Expect(err).NotTo(HaveOccurred())
			synced = append(synced, d)
		}

		_, err := w.Write(common.Rows(observations()))
		Expect(err).NotTo(HaveOccurred())
		Expect(synced).To(Equal([]string{dir}))
	})
})
