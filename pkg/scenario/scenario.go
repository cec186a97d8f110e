/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: scenario.go
Description: Scenario model for inference runs. A scenario names the role and TLS version
being inferred, the input vocabulary, the interesting paths tried first as counterexamples
and the happy paths describing successful handshakes. Scenarios are read from INI files.
*/

package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/kleascm/akaylee-tlsfsm/pkg/automaton"
	"gopkg.in/ini.v1"
)

// CryptoMaterialPattern is replaced by every crypto material name in vocabularies and paths
const CryptoMaterialPattern = "{crypto_material_name}"

// cryptoMaterialParameter is the only supported path parameter
const cryptoMaterialParameter = "crypto_material_name"

const generalSection = "general"

// ErrScenario is matched by every scenario configuration error
var ErrScenario = errors.New("invalid scenario")

// Error is a scenario configuration error
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", ErrScenario, e.Msg, e.Err)
	}
	return fmt.Sprintf("%v: %s", ErrScenario, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrScenario }

func errorf(format string, args ...any) error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Role is the side of the connection played by the inferred implementation
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Version is a supported TLS protocol version
type Version string

const (
	TLS10 Version = "tls10"
	TLS11 Version = "tls11"
	TLS12 Version = "tls12"
	TLS13 Version = "tls13"
)

var supportedVersions = []Version{TLS10, TLS11, TLS12, TLS13}

// Scenario is a read-only description of one inference setup
type Scenario struct {
	Name             string
	Role             Role
	TLSVersion       Version
	InputVocabulary  []string
	InterestingPaths [][]string
	HappyPaths       []automaton.PathSpec
}

// Profile returns the "role.version" key used to select analysis profiles
func (s *Scenario) Profile() string {
	return string(s.Role) + "." + string(s.TLSVersion)
}

// HasSymbol reports whether msg belongs to the input vocabulary
func (s *Scenario) HasSymbol(msg string) bool {
	return slices.Contains(s.InputVocabulary, msg)
}

// Parse builds a scenario from INI content, expanding crypto material placeholders
// with materialNames
func Parse(data []byte, materialNames []string) (*Scenario, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{AllowPythonMultilineValues: true}, data)
	if err != nil {
		return nil, &Error{Msg: "invalid config file", Err: err}
	}

	general, err := cfg.GetSection(generalSection)
	if err != nil || !general.HasKey("name") || !general.HasKey("role") || !general.HasKey("tls_version") {
		return nil, errorf("missing name, role or tls_version in the general section")
	}

	s := &Scenario{
		Name:       general.Key("name").String(),
		Role:       Role(general.Key("role").String()),
		TLSVersion: Version(general.Key("tls_version").String()),
	}
	if s.Role != RoleClient && s.Role != RoleServer {
		return nil, errorf("invalid general.role value (%s)", s.Role)
	}
	if !slices.Contains(supportedVersions, s.TLSVersion) {
		return nil, errorf("invalid general.tls_version value (%s)", s.TLSVersion)
	}

	if !general.HasKey("input_vocabulary") {
		return nil, errorf("missing input_vocabulary in the general section")
	}
	s.InputVocabulary = rewriteMessages(listValue(general, "input_vocabulary"), CryptoMaterialPattern, materialNames)

	for _, name := range listValue(general, "interesting_paths") {
		if err := s.registerInterestingPath(cfg, name, materialNames, true); err != nil {
			return nil, err
		}
	}
	for _, name := range listValue(general, "happy_paths") {
		// happy paths are interesting paths too, but never parameterized
		if err := s.registerInterestingPath(cfg, name, nil, false); err != nil {
			return nil, err
		}
		if err := s.registerHappyPath(cfg, name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load reads and parses a scenario
func Load(r io.Reader, materialNames []string) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return Parse(data, materialNames)
}

// LoadFile reads and parses a scenario file
func LoadFile(path string, materialNames []string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := Parse(data, materialNames)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// registerInterestingPath adds the path section name. A parameterized path is expanded
// once per material name when parameterized is set and rejected otherwise.
func (s *Scenario) registerInterestingPath(cfg *ini.File, name string, materialNames []string, parameterized bool) error {
	section, err := cfg.GetSection(name)
	if err != nil {
		return errorf("empty path (%s)", name)
	}
	msgs := listValue(section, "path")
	if len(msgs) == 0 {
		return errorf("empty path (%s)", name)
	}

	parameter := section.Key("parameter").String()
	switch {
	case parameter == "":
		if err := s.checkPathConsistency(msgs); err != nil {
			return err
		}
		s.InterestingPaths = append(s.InterestingPaths, msgs)
	case parameter == cryptoMaterialParameter && parameterized:
		for _, material := range materialNames {
			path := rewriteMessages(msgs, CryptoMaterialPattern, []string{material})
			if err := s.checkPathConsistency(path); err != nil {
				return err
			}
			s.InterestingPaths = append(s.InterestingPaths, path)
		}
	default:
		return errorf("unsupported path parameter (%s)", parameter)
	}
	return nil
}

func (s *Scenario) registerHappyPath(cfg *ini.File, name string) error {
	section, err := cfg.GetSection(name)
	if err != nil {
		return errorf("empty path (%s)", name)
	}
	sent := listValue(section, "path")
	answers := listValue(section, "answers")
	if len(sent) != len(answers) {
		return errorf("unbalanced happy path (%s): %d messages, %d answers", name, len(sent), len(answers))
	}

	spec := make(automaton.PathSpec, len(sent))
	for i, msg := range sent {
		spec[i] = automaton.SpecStep{Input: msg, Accept: setOfString(answers[i])}
	}
	s.HappyPaths = append(s.HappyPaths, spec)
	return nil
}

func (s *Scenario) checkPathConsistency(path []string) error {
	for _, msg := range path {
		if !s.HasSymbol(msg) {
			return errorf("unknown message %q in path [%s]", msg, strings.Join(path, ", "))
		}
	}
	return nil
}

// listValue splits a comma separated value. A missing key yields nil.
func listValue(section *ini.Section, key string) []string {
	if !section.HasKey(key) {
		return nil
	}
	var out []string
	for _, msg := range strings.Split(section.Key(key).String(), ",") {
		out = append(out, strings.TrimSpace(msg))
	}
	return out
}

// setOfString parses a "+"-joined set of outputs. The empty string is the empty set.
func setOfString(msgs string) automaton.Set {
	if msgs == "" {
		return automaton.NewSet()
	}
	return automaton.NewSet(strings.Split(msgs, "+")...)
}

// rewriteMessages expands every message containing pattern into one message per word
func rewriteMessages(msgs []string, pattern string, words []string) []string {
	var out []string
	for _, msg := range msgs {
		if !strings.Contains(msg, pattern) {
			out = append(out, msg)
			continue
		}
		for _, word := range words {
			out = append(out, strings.ReplaceAll(msg, pattern, word))
		}
	}
	return out
}
