package main

import (
	"strconv"
	"time"

	"github.com/spf13/pflag"

	"github.com/bamsammich/dnetd/internal/config"
	"github.com/bamsammich/dnetd/internal/logging"
)

var (
	_ pflag.Value = portFlag{}
	_ pflag.Value = timeoutFlag{}
	_ pflag.Value = formatFlag{}
)

// portFlag is a pflag.Value accepting a TCP port number.
type portFlag struct {
	port *uint16
}

func (f portFlag) String() string {
	if f.port == nil {
		return ""
	}
	return strconv.Itoa(int(*f.port))
}

func (portFlag) Type() string { return "port" }

func (f portFlag) Set(val string) error {
	p, err := config.ParsePort(val)
	if err != nil {
		return err
	}
	*f.port = p
	return nil
}

// timeoutFlag is a pflag.Value taking the idle timeout in whole seconds.
type timeoutFlag struct {
	timeout *time.Duration
}

func (f timeoutFlag) String() string {
	if f.timeout == nil || *f.timeout == 0 {
		return ""
	}
	return strconv.FormatInt(int64(*f.timeout/time.Second), 10)
}

func (timeoutFlag) Type() string { return "seconds" }

func (f timeoutFlag) Set(val string) error {
	secs, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return err
	}
	d, err := config.ParseTimeout(secs)
	if err != nil {
		return err
	}
	*f.timeout = d
	return nil
}

// formatFlag is a pflag.Value restricted to the known log formats.
type formatFlag struct {
	format *logging.Format
}

func (f formatFlag) String() string {
	if f.format == nil {
		return ""
	}
	return string(*f.format)
}

func (formatFlag) Type() string { return "format" }

func (f formatFlag) Set(val string) error {
	format, err := logging.ParseFormat(val)
	if err != nil {
		return err
	}
	*f.format = format
	return nil
}
