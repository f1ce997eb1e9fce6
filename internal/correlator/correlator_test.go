package correlator

import (
	"strconv"
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

var sessions = common.SessionMap{
	5: {
		SessionID:    5,
		SessionName:  "rdp-tcp 3",
		Username:     "jdoe",
		State:        "Active",
		IdleTime:     "0",
		LogonTimeUTC: "2025-11-08T09:00:00Z",
	},
}

var _ = Describe("SessionName", func() {
	It("uses the session table", func() {
		Expect(SessionName(sessions, 5)).To(Equal("rdp-tcp 3"))
	})

	It("synthesizes console for session 1", func() {
		Expect(SessionName(sessions, 1)).To(Equal("console"))
	})

	It("synthesizes an rdp name for other sessions", func() {
		for _, id := range []int{2, 3, 7, 42, 1000} {
			Expect(SessionName(sessions, id)).To(Equal("rdp-tcp " + strconv.Itoa(id)))
		}
	})

	It("prefers the table for session 1 when present", func() {
		m := common.SessionMap{1: {SessionID: 1, SessionName: "console"}}
		Expect(SessionName(m, 1)).To(Equal("console"))
		m[1] = common.SessionDescriptor{SessionID: 1, SessionName: "rdp-tcp 0"}
		Expect(SessionName(m, 1)).To(Equal("rdp-tcp 0"))
	})
})

var _ = Describe("NormalizeImageName", func() {
	DescribeTable("appends a single suffix",
		func(in, out string) {
			Expect(NormalizeImageName(in)).To(Equal(out))
		},
		Entry("bare", "notepad", "notepad.exe"),
		Entry("suffixed", "notepad.exe", "notepad.exe"),
		Entry("upper case suffix", "NOTEPAD.EXE", "NOTEPAD.exe"),
		Entry("padded", " teams ", "teams.exe"),
	)
})

var _ = Describe("Correlator", func() {
	var (
		c    *Correlator
		logs *observer.ObservedLogs
	)

	BeforeEach(func() {
		var core zapcore.Core
		core, logs = observer.New(zapcore.InfoLevel)
		c = NewCorrelator("avd-host-0", zap.New(core))
	})

	It("produces the expected line for a user process", func() {
		entries := []common.RawProcessEntry{{
			Name:       "notepad",
			PID:        1234,
			SessionID:  5,
			WorkingSet: 20000000,
			CPUTime:    2600 * time.Millisecond,
			Owner:      "jdoe",
		}}
		obs, warnings := c.CorrelateProcesses(capturedAt, sessions, entries)
		Expect(warnings).To(BeEmpty())
		Expect(obs).To(HaveLen(1))
		line := strings.Join(obs[0].Fields(), ",")
		Expect(line).To(Equal("2025-11-08T09:30:15Z,avd-host-0,notepad.exe,1234,jdoe,rdp-tcp 3,5,20000000,3"))
	})

	It("falls back to synthesized names and the user sentinel", func() {
		entries := []common.RawProcessEntry{
			{Name: "explorer.exe", PID: 10, SessionID: 1},
			{Name: "msedge.exe", PID: 11, SessionID: 7, Owner: "bob"},
		}
		obs, _ := c.CorrelateProcesses(capturedAt, sessions, entries)
		Expect(obs).To(HaveLen(2))
		Expect(obs[0].SessionName).To(Equal("console"))
		Expect(obs[0].Username).To(Equal(common.NoUserName))
		Expect(obs[1].SessionName).To(Equal("rdp-tcp 7"))
	})

	It("skips malformed entries and keeps the rest in order", func() {
		entries := []common.RawProcessEntry{
			{Name: "a.exe", PID: 1, SessionID: 5, Owner: "jdoe"},
			{Name: "", PID: 2, SessionID: 5, Owner: "jdoe"},
			{Name: "c.exe", PID: 3, SessionID: 5, WorkingSet: -1, Owner: "jdoe"},
			{Name: "d.exe", PID: 4, SessionID: 5, CPUTime: -time.Second, Owner: "jdoe"},
			{Name: "e.exe", PID: 5, SessionID: 5, Owner: "jdoe"},
		}
		obs, warnings := c.CorrelateProcesses(capturedAt, sessions, entries)
		Expect(warnings).To(HaveLen(3))
		for _, w := range warnings {
			Expect(w).To(MatchError(ErrMalformedEntry))
		}
		Expect(obs).To(HaveLen(2))
		Expect(obs[0].PID).To(Equal(1))
		Expect(obs[1].PID).To(Equal(5))
		Expect(logs.FilterMessage("skipped process entry").Len()).To(Equal(3))
	})

	It("rounds cpu time to the nearest second", func() {
		rec, err := NewProcessRecord(common.RawProcessEntry{Name: "x", PID: 1, SessionID: 2, CPUTime: 1499 * time.Millisecond})
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.CPUTimeSeconds).To(Equal(int64(1)))
		rec, err = NewProcessRecord(common.RawProcessEntry{Name: "x", PID: 1, SessionID: 2, CPUTime: 1500 * time.Millisecond})
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.CPUTimeSeconds).To(Equal(int64(2)))
	})

	It("turns sessions into observations", func() {
		list := []common.SessionDescriptor{sessions[5]}
		obs := c.CorrelateSessions(capturedAt, list)
		Expect(obs).To(HaveLen(1))
		Expect(obs[0].Fields()).To(Equal([]string{
			"2025-11-08T09:30:15Z", "avd-host-0", "jdoe", "rdp-tcp 3", "5", "Active", "0", "2025-11-08T09:00:00Z",
		}))
	})
})
