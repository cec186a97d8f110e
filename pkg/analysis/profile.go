/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: profile.go
Description: Analysis profiles for learned TLS client automata. A profile carries the
short message names used in reports, the expected handshakes, the working test and the
security tests of one role and protocol version.
*/

package analysis

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
)

// Colors used when annotating automata
const (
	ColorGreen  = "green"
	ColorOrange = "orange"
	ColorRed    = "red"
	ColorGrey   = "grey"
)

// ErrUnknownProfile is returned for a profile name with no registered profile
var ErrUnknownProfile = errors.New("unknown analysis profile")

// SecurityTest inspects and colors an automaton. It returns a finding, or false when
// the automaton passes the test.
type SecurityTest func(a *automaton.Automaton) (string, bool, error)

// Profile describes how to analyze automata learned for one scenario profile
type Profile struct {
	Name          string
	InputMapping  map[string]string
	OutputMapping map[string]string
	HappyPaths    []automaton.PathSpec
	Working       func(a *automaton.Automaton) bool
	SecurityTests []SecurityTest
	ColorPolicy   automaton.DotPolicy
}

var tls12ClientInputs = map[string]string{
	"TLS12ServerHello":           "SH",
	"TLS12CertificateRequest":    "CR",
	"TLS12Certificate_valid":     "Cert",
	"TLS12Certificate_invalid":   "Cert_invalid",
	"TLS12Certificate_untrusted": "Cert_untrusted",
	"TLS12EmptyCertificate":      "EmptyCert",
	"TLS12ServerKeyExchange":     "SKE",
	"TLS12ServerHelloDone":       "SHD",
	"TLSChangeCipherSpec":        "CCS",
	"TLSFinished":                "Fin",
	"TLSApplicationData":         "AppData",
	"TLSCloseNotify":             "Close",
}

var tls12ClientOutputs = map[string]string{
	"FatalAlert(bad_record_mac)":     "BadMAC",
	"FatalAlert(decode_error)":       "DecodeError",
	"FatalAlert(handshake_failure)":  "HSFailure",
	"FatalAlert(internal_error)":     "InternalError",
	"FatalAlert(unexpected_message)": "UnexpectedMsg",
	"FatalAlert(unknown_ca)":         "UnknownCA",
	"FatalAlert(bad_certificate)":    "BadCert",
	"INTERNAL ERROR DURING EMISSION": "CouldNotEmit",
	"NO_CONNECTION":                  "NoConnection",
	"No RSP":                         "-",
	"TLSApplicationData":             "AppData",
	"TLSCertificate":                 "Cert",
	"TLSCertificateVerify":           "CV",
	"TLSChangeCipherSpec":            "CCS",
	"TLSClientKeyExchange":           "CKE",
	"TLSFinished":                    "Fin",
	"UnknownPacket":                  "Unknown",
	"Warning(close_notify)":          "Close",
}

var tls13ClientInputs = map[string]string{
	"TLS13ServerHello":              "SH",
	"TLS13SH_WITH_00_RandBytes":     "SH_rand00",
	"TLSChangeCipherSpec":           "CCS",
	"TLS13EncryptedExtensions":      "EE",
	"TLS13CertificateRequest":       "CR",
	"TLS13Certificate_valid":        "Cert",
	"TLS13Certificate_invalid":      "Cert_invalid",
	"TLS13Certificate_untrusted":    "Cert_untrusted",
	"TLS13EmptyCertificate":         "EmptyCert",
	"TLS13CertificateVerify":        "CV",
	"TLS13InvalidCertificateVerify": "CV_invalid",
	"TLSFinished":                   "Fin",
	"TLSApplicationData":            "AppData",
	"TLSApplicationDataEmpty":       "EmptyAppData",
	"TLSCloseNotify":                "Close",
	"NoRenegotiation":               "NoReneg",
}

var tls13ClientOutputs = map[string]string{
	"FatalAlert(bad_record_mac)":       "BadMAC",
	"FatalAlert(decode_error)":         "DecodeError",
	"FatalAlert(handshake_failure)":    "HSFailure",
	"FatalAlert(internal_error)":       "InternalError",
	"FatalAlert(unexpected_message)":   "UnexpectedMsg",
	"FatalAlert(unknown_ca)":           "UnknownCA",
	"FatalAlert(certificate_required)": "CertRequires",
	"FatalAlert(certificate_unknown)":  "CertUnknown",
	"FatalAlert(close_notify)":         "FatalClose",
	"FatalAlert(decrypt_error)":        "DecryptError",
	"FatalAlert(decryption_failed)":    "DecryptFailed",
	"FatalAlert(illegal_parameter)":    "IllegalParam",
	"FatalAlert(protocol_version)":     "WrongVersion",
	"FatalAlert(bad_certificate)":      "BadCert",
	"INTERNAL ERROR DURING EMISSION":   "CouldNotEmit",
	"NO_CONNECTION":                    "NoConnection",
	"No RSP":                           "-",
	"TLSApplicationData":               "AppData",
	"TLS13Certificate":                 "Cert",
	"TLSCertificateVerify":             "CV",
	"TLSChangeCipherSpec":              "CCS",
	"TLSFinished":                      "Fin",
	"UnknownPacket":                    "Unknown",
	"Warning(close_notify)":            "Close",
}

// fatalAlerts are the short names of fatal alerts, which end a connection like EOF
var fatalAlerts = automaton.NewSet(
	"BadMAC", "DecodeError", "HSFailure", "InternalError", "UnexpectedMsg", "UnknownCA",
	"CertRequires", "CertUnknown", "FatalClose", "DecryptError", "DecryptFailed",
	"IllegalParam", "WrongVersion", "FatalNoReneg", "BadCert",
)

// handshake builds a trace where only the steps listed in expect constrain outputs
func handshake(inputs string, expect map[string]string) automaton.PathSpec {
	var spec automaton.PathSpec
	for _, input := range strings.Split(inputs, ",") {
		step := automaton.SpecStep{Input: input, Accept: automaton.NewSet()}
		if out, ok := expect[input]; ok {
			step.Accept.Add(out)
		}
		spec = append(spec, step)
	}
	return spec
}

var (
	tls12Expect = map[string]string{"SHD": "Fin"}
	tls13Expect = map[string]string{"Fin": "Fin"}
)

var profiles = map[string]*Profile{
	"client.tls12": {
		Name:          "client.tls12",
		InputMapping:  tls12ClientInputs,
		OutputMapping: tls12ClientOutputs,
		HappyPaths: []automaton.PathSpec{
			handshake("SH,Cert,SKE,SHD,CCS,Fin", tls12Expect),
			handshake("SH,Cert,SHD,CCS,Fin", tls12Expect),
			handshake("SH,Cert,SKE,CR,SHD,CCS,Fin", tls12Expect),
			handshake("SH,Cert,CR,SHD,CCS,Fin", tls12Expect),
			handshake("SH,Cert,SKE,SHD,CCS,Fin,AppData", tls12Expect),
			handshake("SH,Cert,SHD,CCS,Fin,AppData", tls12Expect),
		},
		Working: isClientWorking,
		SecurityTests: []SecurityTest{
			DetectLoops("CCS"),
			DetectAuthenticationBypass("SKE"),
		},
		ColorPolicy: ColorPolicy,
	},
	"client.tls13": {
		Name:          "client.tls13",
		InputMapping:  tls13ClientInputs,
		OutputMapping: tls13ClientOutputs,
		HappyPaths: []automaton.PathSpec{
			handshake("SH,CCS,EE,Cert,CV,Fin,AppData", tls13Expect),
			handshake("SH,EE,Cert,CV,Fin,AppData", tls13Expect),
			handshake("SH,CCS,EE,Cert,CV,Fin", tls13Expect),
			handshake("SH,EE,Cert,CV,Fin", tls13Expect),
		},
		Working: isClientWorking,
		SecurityTests: []SecurityTest{
			DetectLoops("SH", "SH_rand00"),
			DetectAuthenticationBypass("CV"),
		},
		ColorPolicy: ColorPolicy,
	},
}

// LookupProfile returns the profile registered under name ("client.tls12", ...)
func LookupProfile(name string) (*Profile, error) {
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownProfile, name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

// ProfileNames lists the registered profiles
func ProfileNames() []string {
	return slices.Sorted(maps.Keys(profiles))
}

// isClientWorking reports whether the client ever sent a Finished message
func isClientWorking(a *automaton.Automaton) bool {
	return a.ContainsTransitionWithReceivedMsg("Fin")
}

// ColorPolicy draws happy path transitions green only, and stars transitions that are
// uncolored or only grey
func ColorPolicy(colors automaton.Set) (automaton.Set, bool) {
	if colors.Has(ColorGreen) {
		return automaton.NewSet(ColorGreen), false
	}
	if colors.Equal(automaton.NewSet(ColorGrey)) {
		return colors, true
	}
	return colors, len(colors) == 0
}

// DetectLoops colors orange every loop reachable before any of the crypto messages is sent
func DetectLoops(cryptoMessages ...string) SecurityTest {
	return func(a *automaton.Automaton) (string, bool, error) {
		loops := FindLoops(a, cryptoMessages)
		if len(loops) == 0 {
			return "", false, nil
		}
		for _, loop := range loops {
			if err := a.ColorPath(loop, ColorOrange); err != nil {
				return "", false, err
			}
		}
		return fmt.Sprintf("Pre-%s loops found", strings.Join(cryptoMessages, "/")), true, nil
	}
}

// DetectAuthenticationBypass colors red every path reaching application data without
// the authenticating message being sent
func DetectAuthenticationBypass(authMessage string) SecurityTest {
	return func(a *automaton.Automaton) (string, bool, error) {
		var vulnerable []automaton.Path
		for path := range a.PathsUntilOutput("AppData") {
			if automaton.MessageWasNotSent(path, authMessage) {
				vulnerable = append(vulnerable, path)
			}
		}
		if len(vulnerable) == 0 {
			return "", false, nil
		}
		for _, path := range vulnerable {
			if err := a.ColorPath(path, ColorRed); err != nil {
				return "", false, err
			}
		}
		return "Possible authentication bypass", true, nil
	}
}

// CleanupUninterestingTransitions colors grey the uncolored transitions that lead into
// a sink state with a single closing output (Close, EOF or a fatal alert)
func CleanupUninterestingTransitions(a *automaton.Automaton) error {
	for _, state := range a.States() {
		for _, sym := range a.Symbols(state) {
			t, err := a.FollowTransition(state, sym)
			if err != nil {
				return err
			}
			if len(t.Colors) > 0 || !a.IsSinkState(t.Dst) || len(t.Outputs) != 1 {
				continue
			}
			out := t.Outputs[0]
			if out == "Close" || out == "EOF" || fatalAlerts.Has(out) {
				if err := a.ColorTransition(state, sym, ColorGrey); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
