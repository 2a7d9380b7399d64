package linker

import (
	"sort"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Import identifies one required guest import.
type Import struct {
	Module string
	Name   string
}

// DeclaredImports computes the union of every provider's declared
// (module, function) pairs across all registered versions.
func (l *Linker) DeclaredImports() map[Import]struct{} {
	declared := make(map[Import]struct{})
	for _, p := range l.providers {
		funcs := p.Functions()
		for _, module := range moduleNames(p) {
			for _, decl := range funcs {
				declared[Import{Module: module, Name: decl.Name}] = struct{}{}
			}
		}
	}
	return declared
}

// MissingImports diffs the compiled module's required function imports
// against the providers' declarations in one deterministic,
// side-effect-free pass, reporting the full missing set rather than
// the first miss the engine would fail on.
func (l *Linker) MissingImports(compiled wazero.CompiledModule) []Import {
	declared := l.DeclaredImports()

	var missing []Import
	for _, def := range compiled.ImportedFunctions() {
		module, name, ok := def.Import()
		if !ok {
			continue
		}
		if _, found := declared[Import{Module: module, Name: name}]; !found {
			missing = append(missing, Import{Module: module, Name: name})
		}
	}

	sort.Slice(missing, func(i, j int) bool {
		if missing[i].Module != missing[j].Module {
			return missing[i].Module < missing[j].Module
		}
		return missing[i].Name < missing[j].Name
	})
	return missing
}

// ValidateCoverage reports missing imports as warnings. Advisory only:
// a missing import may guard a code path the guest never reaches, so
// instantiation proceeds regardless.
func (l *Linker) ValidateCoverage(compiled wazero.CompiledModule) []Import {
	missing := l.MissingImports(compiled)
	for _, imp := range missing {
		l.logger.Warn("guest import not provided",
			zap.String("module", imp.Module),
			zap.String("function", imp.Name))
	}
	return missing
}
