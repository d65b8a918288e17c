package model

// Model bundles a trained network with the frozen feature schema it was
// fitted on. Both are required to transform and score new data.
type Model struct {
	MetaData *Metadata
	Network  *TabTransformer
}
