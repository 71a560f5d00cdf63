package normalize

// Normalize is a pure function over its input text and never fails: an
// empty or stop-word-only document simply yields an empty TokenStream.
// No error type is defined in this package for that reason — unlike the
// other pipeline stages, there is nothing here for metadata.ErrorCause to
// classify.
