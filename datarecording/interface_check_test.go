package datarecording

// If this compiles, sqliteWriter implements DataRecorder.
var _ DataRecorder = (*sqliteWriter)(nil)
