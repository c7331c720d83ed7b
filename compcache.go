package compcache

// defaultCache backs the package-level functions: OS filesystem, process
// environment, BackendFile.
var defaultCache = New()

// BuildFingerprint computes the fingerprint of a unit of work using the
// default Cache. backend is accepted but not part of the fingerprint.
func BuildFingerprint(projectRoot, sourceRoot, action, interpreterVersion string, fileDependencies, envDependencies []string, backend string) (Fingerprint, error) {
	return defaultCache.Fingerprint(WorkDescriptor{
		ProjectRoot:        projectRoot,
		SourceRoot:         sourceRoot,
		Action:             action,
		InterpreterVersion: interpreterVersion,
		FileDependencies:   fileDependencies,
		EnvDependencies:    envDependencies,
		Backend:            backend,
	})
}

// Check returns the entry stored for fp using the default Cache, or nil on a miss.
func Check(projectRoot string, fp Fingerprint) (*Entry, error) {
	return defaultCache.Check(projectRoot, fp)
}

// Update stores entry for fp using the default Cache and returns the
// previous entry, or nil.
func Update(projectRoot string, fp Fingerprint, entry Entry) (*Entry, error) {
	return defaultCache.Update(projectRoot, fp, entry)
}
