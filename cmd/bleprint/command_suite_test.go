package main

import (
	"bytes"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/suite"

	"github.com/srg/bleprint/internal/device"
	"github.com/srg/bleprint/internal/store"
	"github.com/srg/bleprint/internal/testutils"
	"github.com/srg/bleprint/pkg/config"
)

const testPrinterAddress = "00:00:00:00:00:01"

var testPrinter = device.DeviceInfo{DeviceID: testPrinterAddress, Name: "P21", LocalName: "P21"}

// CommandTestSuite runs commands against a fake platform and an in-memory store.
type CommandTestSuite struct {
	suite.Suite
	platform *testutils.FakePlatform
	kv       *store.MemoryKV

	origPlatform func(*logrus.Logger) device.Platform
	origStore    func(*config.Config, *logrus.Logger) store.KV
}

func (s *CommandTestSuite) SetupTest() {
	s.platform = testutils.NewFakePlatform().
		WithService(testPrinterAddress, "ff00", true, testutils.ReadOnlyChar("ff01"), testutils.WritableChar("ff02"))
	s.kv = store.NewMemoryKV()

	s.origPlatform, s.origStore = newPlatform, newStore
	newPlatform = func(*logrus.Logger) device.Platform { return s.platform }
	newStore = func(*config.Config, *logrus.Logger) store.KV { return s.kv }
}

func (s *CommandTestSuite) TearDownTest() {
	newPlatform, newStore = s.origPlatform, s.origStore
	resetFlags(rootCmd)
}

// ExecuteCommand runs the root command with args, returns stdout, stderr and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	resetFlags(rootCmd)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func (s *CommandTestSuite) Remember(d device.DeviceInfo) {
	s.Require().NoError(store.NewLastDevice(s.kv).Save(d))
}

func (s *CommandTestSuite) Remembered() (device.DeviceInfo, bool) {
	d, ok, err := store.NewLastDevice(s.kv).Load()
	s.Require().NoError(err)
	return d, ok
}

// resetFlags restores every flag of cmd and its subcommands to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}
