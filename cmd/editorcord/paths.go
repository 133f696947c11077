package main

import "tools.zach/dev/editorcord/internal/paths"

// ///////////////////////////////////////////////
// Path Aliases
// ///////////////////////////////////////////////

// DataPaths aliases [paths.DataDir] so command code can build data directory
// paths without qualifying the internal package name.
type DataPaths = paths.DataDir
