/*
Package compcache provides a content-addressed computation cache for a Python
build and analysis tool.

Given a description of a unit of work it derives a stable fingerprint, and it
stores and retrieves the result of that work keyed by the fingerprint, so the
work is only redone when one of its inputs changed.

# Overview

A fingerprint is derived from six ordered sources of bytes, fed into a single
streaming 64-bit hash (xxHash by default):

 1. every source file under ProjectRoot/SourceRoot, in walk order
 2. NAME=VALUE for every environment dependency
 3. the dependencies declared in requirements.txt or pyproject.toml
 4. every file matched by the file dependency patterns, pattern by pattern
 5. the action name
 6. the interpreter version

The sources are concatenated without separators and the digest is rendered as
16 upper-case hex digits. Reordering inputs changes the fingerprint, so callers
must pass dependency lists in a deterministic order.

# Basic Usage

Computing a fingerprint:

	cache := compcache.New()
	fp, err := cache.Fingerprint(compcache.WorkDescriptor{
	    ProjectRoot:        ".",
	    SourceRoot:         "src",
	    Action:             "check",
	    InterpreterVersion: "3.11",
	    FileDependencies:   []string{"setup.cfg", "config/settings.yml"},
	    EnvDependencies:    []string{"DJANGO_SETTINGS_MODULE"},
	})
	if err != nil {
	    // An input could not be read: recompute without the cache.
	}

Checking for a cached result:

	entry, err := cache.Check(".", fp)
	switch {
	case compcache.IsCacheError(err):
	    // The cache is unavailable: proceed uncached.
	case entry != nil:
	    // Cache hit: replay entry.Items and entry.Status.
	default:
	    // Cache miss: compute, then store the result.
	    _, err = cache.Update(".", fp, compcache.Entry{
	        Items:  []compcache.Item{{Status: 0, Message: "ok"}},
	        Status: 0,
	    })
	}

The package-level BuildFingerprint, Check and Update functions do the same with
a default Cache.

# Dependency Manifests

The declared dependencies are read from the first manifest found in the project
root:

  - requirements.txt: one dependency per line; blank lines and # comments are skipped
  - pyproject.toml: project.dependencies, then every group of
    project.optional-dependencies in sorted group order

A missing or malformed manifest is logged and contributes no dependencies; it
never fails the fingerprint.

# File Structure

The store lives in a reserved directory at the project root:

	.tach/
	└── computation-cache/
	    └── [first 2 chars of fingerprint]/
	        └── [fingerprint].json

With BackendBolt the store is a single bbolt database instead:

	.tach/
	└── computation-cache/
	    └── cache.db

Entries are never evicted. Cache.Clear removes the whole store.

File dependency patterns may use a double star segment to match any number
of directories. The store directory is never matched, so writing a result
does not change the fingerprint that produced it.

# Error Handling

Errors are *Error values carrying a Kind:

  - InputRead: an input file could not be read; no fingerprint is produced
  - ManifestParse: a manifest is malformed; only logged
  - StoreInit: the store could not be opened or created
  - StoreIO: a read or write against the store failed

A cache miss is not an error: Check returns a nil entry. IsCacheError reports
StoreInit and StoreIO, which callers should treat as "proceed without cache".
*/
package compcache
