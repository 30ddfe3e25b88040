package main

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
	"go2tv.app/castads/internal/config"
)

type options struct {
	device         string
	appID          string
	title          string
	mediaURL       string
	contentType    string
	adTag          string
	adClient       string
	adOffset       string
	namespaces     []string
	json           bool
	fireTrackers   bool
	openClick      bool
	debug          bool
	logFile        string
	trackerRetries int
	trackerRate    float64
}

func checkflags() (exit bool, err error) {
	if checkVerflag() {
		return true, nil
	}

	if err := checkUflag(*mediaArg); err != nil {
		return false, errors.Wrap(err, "checkflags error")
	}

	if err := checkUflag(*adTagArg); err != nil {
		return false, errors.Wrap(err, "checkflags error")
	}

	if *adTagArg != "" && *mediaArg == "" {
		return false, errors.New("-ad-tag needs -u")
	}

	return false, nil
}

func checkUflag(raw string) error {
	if raw == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(raw); err != nil {
		return errors.Wrap(err, "checkUflag parse error")
	}
	return nil
}

func checkVerflag() bool {
	if *versionPtr {
		fmt.Printf("castads Version: %s, ", version)
		fmt.Printf("Build: %s\n", build)
		return true
	}
	return false
}

// resolveOptions merges flags over the settings file.
func resolveOptions(conf *config.Config) options {
	if conf == nil {
		conf = config.Default()
	}

	opts := options{
		device:         conf.Device,
		appID:          conf.ReceiverAppID,
		title:          *titleArg,
		mediaURL:       *mediaArg,
		contentType:    *contentTypeArg,
		adTag:          *adTagArg,
		adClient:       *adClientArg,
		adOffset:       *adOffsetArg,
		namespaces:     conf.Namespaces,
		json:           *jsonPtr,
		fireTrackers:   *fireTrackersPtr,
		openClick:      *openClickPtr,
		debug:          *debugPtr || conf.Debug,
		logFile:        conf.LogFile,
		trackerRetries: conf.TrackerRetries,
		trackerRate:    conf.TrackerRate,
	}

	if *targetPtr != "" {
		opts.device = *targetPtr
	}

	if *appArg != "" {
		opts.appID = *appArg
	}

	return opts
}
