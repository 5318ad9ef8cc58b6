package materializer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smilemakc/mbflow/pkg/models"
)

func stubFilename(lang models.Language) string {
	switch lang {
	case models.LanguagePython:
		return "ui_binding.py"
	case models.LanguageCSharp:
		return "UiBinding.cs"
	default:
		return "ui_binding.json"
	}
}

// generateStub produces the UI-binding source for the given program
// language and component. Python and C# get typed accessor classes;
// every other language gets a minimal raw-JSON shim the program can
// parse itself.
func generateStub(lang models.Language, component *models.UiComponent) (string, error) {
	switch lang {
	case models.LanguagePython:
		return generatePythonStub(component), nil
	case models.LanguageCSharp:
		return generateCSharpStub(component), nil
	default:
		return generateRawStub(component)
	}
}

func pyIdent(name string) string {
	s := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if s == "" {
		s = "field"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	return s
}

// generatePythonStub builds a Python class exposing getters/setters for
// every bound field, and for table columns cell accessors named after the
// column's customName that read and write its cellId key. Values are kept
// as parsed from JSON; the accessors do no type conversion. from_json is
// the entry point bound to the program's first CLI argument.
func generatePythonStub(component *models.UiComponent) string {
	var b strings.Builder
	className := "UiBinding"
	if component.Name != "" {
		className = "UiBinding" + strings.Title(strings.ReplaceAll(pyIdent(component.Name), "_", " "))
		className = strings.ReplaceAll(className, " ", "")
	}

	b.WriteString("# Auto-generated UI binding stub. Do not edit by hand.\n")
	b.WriteString("import json\nimport sys\n\n\n")
	fmt.Fprintf(&b, "class %s:\n", className)
	b.WriteString("    def __init__(self):\n")

	elements := component.Elements()
	if len(elements) == 0 {
		b.WriteString("        pass\n\n")
	}
	for _, el := range elements {
		field := pyIdent(el.CustomName)
		if len(el.Columns) > 0 {
			fmt.Fprintf(&b, "        self.%s = []  # table rows\n", field)
			continue
		}
		fmt.Fprintf(&b, "        self.%s = None\n", field)
	}
	b.WriteString("\n")

	for _, el := range elements {
		field := pyIdent(el.CustomName)
		if len(el.Columns) > 0 {
			continue
		}
		fmt.Fprintf(&b, "    def get_%s(self):\n        return self.%s\n\n", field, field)
		fmt.Fprintf(&b, "    def set_%s(self, value):\n        self.%s = value\n\n", field, field)
	}

	for _, el := range elements {
		if len(el.Columns) == 0 {
			continue
		}
		field := pyIdent(el.CustomName)
		fmt.Fprintf(&b, "    def get_%s(self):\n        return self.%s\n\n", field, field)
		for _, col := range el.Columns {
			cellMethod := pyIdent(col.CustomName)
			if col.CustomName == "" {
				cellMethod = pyIdent(col.CellID)
			}
			fmt.Fprintf(&b, "    def get_cell_%s(self, row):\n        return self.%s[row].get(%q)\n\n", cellMethod, field, col.CellID)
			fmt.Fprintf(&b, "    def set_cell_%s(self, row, value):\n        self.%s[row][%q] = value\n\n", cellMethod, field, col.CellID)
		}
	}

	b.WriteString("    def validate(self):\n")
	hasRequired := false
	for _, el := range elements {
		if !el.Required || len(el.Columns) > 0 {
			continue
		}
		hasRequired = true
		field := pyIdent(el.CustomName)
		fmt.Fprintf(&b, "        if self.%s is None:\n            raise ValueError(%q)\n", field, field+" is required")
	}
	if !hasRequired {
		b.WriteString("        pass\n")
	}
	b.WriteString("\n")

	b.WriteString("    @classmethod\n")
	b.WriteString("    def from_json(cls, raw):\n")
	b.WriteString("        data = json.loads(raw)\n")
	b.WriteString("        instance = cls()\n")
	for _, el := range elements {
		field := pyIdent(el.CustomName)
		fmt.Fprintf(&b, "        instance.%s = data.get(%q)\n", field, el.CustomName)
	}
	b.WriteString("        instance.validate()\n")
	b.WriteString("        return instance\n\n\n")

	b.WriteString("def load_from_args():\n")
	b.WriteString("    if len(sys.argv) < 2:\n")
	b.WriteString("        raise SystemExit(\"usage: program.py <params-json>\")\n")
	fmt.Fprintf(&b, "    return %s.from_json(sys.argv[1])\n", className)

	return b.String()
}

// generateCSharpStub builds a C# class with [JsonPropertyName] properties
// and identical getter/setter/validate semantics to the Python stub.
func generateCSharpStub(component *models.UiComponent) string {
	var b strings.Builder
	className := "UiBinding"

	b.WriteString("// Auto-generated UI binding stub. Do not edit by hand.\n")
	b.WriteString("using System;\nusing System.Text.Json;\nusing System.Text.Json.Serialization;\n\n")
	fmt.Fprintf(&b, "public class %s\n{\n", className)

	elements := component.Elements()
	for _, el := range elements {
		prop := csProp(el.CustomName)
		if len(el.Columns) > 0 {
			fmt.Fprintf(&b, "    [JsonPropertyName(%q)]\n    public System.Collections.Generic.List<System.Collections.Generic.Dictionary<string, object>> %s { get; set; } = new();\n\n", el.CustomName, prop)
			continue
		}
		fmt.Fprintf(&b, "    [JsonPropertyName(%q)]\n    public object %s { get; set; }\n\n", el.CustomName, prop)
	}

	b.WriteString("    public void Validate()\n    {\n")
	for _, el := range elements {
		if !el.Required || len(el.Columns) > 0 {
			continue
		}
		prop := csProp(el.CustomName)
		fmt.Fprintf(&b, "        if (%s == null) throw new InvalidOperationException(%q);\n", prop, el.CustomName+" is required")
	}
	b.WriteString("    }\n\n")

	fmt.Fprintf(&b, "    public static %s FromJson(string raw)\n    {\n", className)
	fmt.Fprintf(&b, "        var instance = JsonSerializer.Deserialize<%s>(raw);\n", className)
	b.WriteString("        instance.Validate();\n        return instance;\n    }\n\n")

	b.WriteString("    public static " + className + " LoadFromArgs(string[] args)\n    {\n")
	b.WriteString("        if (args.Length < 1) throw new ArgumentException(\"usage: program <params-json>\");\n")
	b.WriteString("        return FromJson(args[0]);\n    }\n")
	b.WriteString("}\n")

	return b.String()
}

func csProp(name string) string {
	ident := pyIdent(name)
	parts := strings.Split(ident, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	if b.Len() == 0 {
		return "Field"
	}
	return b.String()
}

// generateRawStub produces a minimal JSON shim for languages without a
// typed binding generator (Java, Node.js): the component's schema,
// serialized as-is, for the program to parse directly.
func generateRawStub(component *models.UiComponent) (string, error) {
	payload := map[string]interface{}{
		"name":          component.Name,
		"type":          component.Type,
		"configuration": component.Configuration,
		"schema":        component.Schema,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal raw ui stub: %w", err)
	}
	return string(data), nil
}
