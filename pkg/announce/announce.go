package announce

import (
	"bufio"
	"errors"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/jzelinskie/stringz"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/schema"
)

const lineEnd = `\s*(?P<comment>//.*|/\*.*\*/)?\s*$`

var (
	emptyRegex      = regexp.MustCompile(`^\s*(?://.*|/\*.*\*/)?\s*$`)
	classBeginRegex = regexp.MustCompile(`^\s*class\s+(?P<name>\w+)\s*\{` + lineEnd)
	fieldRegex      = regexp.MustCompile(`^\s*(?P<qualifiers>(?:(?:local|const)\s+)*)(?P<type>\w+)\s+(?P<name>\w+)\s*(?P<array>\[\])?\s*;` + lineEnd)
	keyRegex        = regexp.MustCompile(`^\s*(?P<local>LOCAL\s+)?KEY\(\s*(?P<fields>[\w\s,]*)\)\s*;` + lineEnd)
	capabilityRegex = regexp.MustCompile(`^\s*CAPABILITY\(\s*(?P<names>[\w\s,]*)\)\s*;` + lineEnd)
	partitionRegex  = regexp.MustCompile(`^\s*PARTITIONBY\((?P<clause>.*)\)\s*;` + lineEnd)
	blockEndRegex   = regexp.MustCompile(`^\s*\}\s*;` + lineEnd)
	enumBeginRegex  = regexp.MustCompile(`^\s*enum\s+(?P<name>\w+)\s*\{` + lineEnd)
	enumValueRegex  = regexp.MustCompile(`^\s*"(?P<value>.+)"\s*,?` + lineEnd)
)

// Result holds the declarations of one announcement file.
type Result struct {
	// Tables are the declared classes, in file order.
	Tables []*schema.Table

	// Enums maps each declared enum to its values.
	Enums map[string][]string
}

type keyDeclaration struct {
	fields []string
	local  bool
}

type parser struct {
	platform string
	result   *Result

	table *schema.Table
	keys  []keyDeclaration

	enum string
}

// Parse reads the declarations of the platform's objects.
func Parse(r io.Reader, platform string) (*Result, error) {
	p := &parser{
		platform: platform,
		result:   &Result{Enums: map[string][]string{}},
	}

	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		if err := p.parseLine(strings.TrimRight(scanner.Text(), "\r\n")); err != nil {
			return nil, NewParseErr(lineNumber, scanner.Text(), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	switch {
	case p.table != nil:
		return nil, NewParseErr(lineNumber, "", errUnterminated("class", p.table.Name))
	case p.enum != "":
		return nil, NewParseErr(lineNumber, "", errUnterminated("enum", p.enum))
	}
	return p.result, nil
}

// ParseString reads declarations from a string.
func ParseString(contents string, platform string) (*Result, error) {
	return Parse(strings.NewReader(contents), platform)
}

// ParseFile reads declarations from a file.
func ParseFile(path string, platform string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	log.Debug().Str("platform", platform).Str("path", path).Msg("parsing announcement file")
	return Parse(f, platform)
}

// Load reads the announcement file at path, or the inline contents when path
// is empty.
func Load(path, contents, platform string) (*Result, error) {
	switch {
	case path != "":
		return ParseFile(path, platform)
	case contents != "":
		return ParseString(contents, platform)
	default:
		return nil, errors.New("no announcement")
	}
}

func group(re *regexp.Regexp, groups []string, name string) string {
	return groups[stringz.SliceIndex(re.SubexpNames(), name)]
}

func (p *parser) parseLine(line string) error {
	if emptyRegex.MatchString(line) || strings.HasPrefix(strings.TrimSpace(line), "#") {
		return nil
	}

	switch {
	case p.table != nil:
		return p.parseClassLine(line)
	case p.enum != "":
		return p.parseEnumLine(line)
	}

	if groups := classBeginRegex.FindStringSubmatch(line); groups != nil {
		p.table = schema.NewTable(p.platform, group(classBeginRegex, groups, "name"))
		p.keys = nil
		return nil
	}
	if groups := enumBeginRegex.FindStringSubmatch(line); groups != nil {
		p.enum = group(enumBeginRegex, groups, "name")
		p.result.Enums[p.enum] = []string{}
		return nil
	}
	return errExpected("class or enum declaration")
}

func (p *parser) parseClassLine(line string) error {
	if groups := fieldRegex.FindStringSubmatch(line); groups != nil {
		qualifiers := strings.Fields(group(fieldRegex, groups, "qualifiers"))
		p.table.AddField(&schema.Field{
			Name:        group(fieldRegex, groups, "name"),
			Type:        group(fieldRegex, groups, "type"),
			IsArray:     group(fieldRegex, groups, "array") != "",
			IsConst:     stringz.SliceContains(qualifiers, "const"),
			IsLocal:     stringz.SliceContains(qualifiers, "local"),
			Description: description(group(fieldRegex, groups, "comment")),
		})
		return nil
	}

	if groups := keyRegex.FindStringSubmatch(line); groups != nil {
		fields := splitList(group(keyRegex, groups, "fields"))
		if len(fields) > 0 {
			p.keys = append(p.keys, keyDeclaration{
				fields: fields,
				local:  group(keyRegex, groups, "local") != "",
			})
		}
		return nil
	}

	if groups := capabilityRegex.FindStringSubmatch(line); groups != nil {
		capabilities, err := schema.ParseCapabilities(splitList(group(capabilityRegex, groups, "names"))...)
		if err != nil {
			return err
		}
		p.table.Capabilities = capabilities
		return nil
	}

	if groups := partitionRegex.FindStringSubmatch(line); groups != nil {
		log.Debug().
			Str("table", p.table.Name).
			Str("clause", group(partitionRegex, groups, "clause")).
			Msg("ignoring partition clause")
		return nil
	}

	if blockEndRegex.MatchString(line) {
		return p.endClass()
	}

	return errExpected("field, KEY, CAPABILITY or end of class")
}

func (p *parser) endClass() error {
	for _, key := range p.keys {
		insert := p.table.InsertKey
		if key.local {
			insert = p.table.InsertLocalKey
		}
		if err := insert(key.fields...); err != nil {
			return err
		}
	}

	if len(p.table.Keys) == 0 {
		implicit := p.table.Name + "_id"
		if _, ok := p.table.GetField(implicit); ok {
			return schema.NewInvalidTableErr(p.table.Name, "implicit key `"+implicit+"` is already a field")
		}
		log.Info().Str("table", p.table.Name).Str("key", implicit).Msg("adding implicit key")
		p.table.AddField(&schema.Field{Name: implicit, Type: "unsigned", IsConst: true, Description: "Dummy key"})
		if err := p.table.InsertKey(implicit); err != nil {
			return err
		}
	}

	p.result.Tables = append(p.result.Tables, p.table)
	p.table = nil
	p.keys = nil
	return nil
}

func (p *parser) parseEnumLine(line string) error {
	if groups := enumValueRegex.FindStringSubmatch(line); groups != nil {
		p.result.Enums[p.enum] = append(p.result.Enums[p.enum], group(enumValueRegex, groups, "value"))
		return nil
	}
	if blockEndRegex.MatchString(line) {
		p.enum = ""
		return nil
	}
	return errExpected("quoted enum value or end of enum")
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func description(comment string) string {
	comment = strings.TrimPrefix(comment, "//")
	comment = strings.TrimLeft(comment, "/*< ")
	return strings.TrimRight(comment, "*/ ")
}
