// Copyright (c) LabelFlow Authors.
// Licensed under the MIT License.

/*
Package storage maps workflow stages onto a project's data directory and the
lineage tables.

Layout below <data_dir>/data:

	original/                  image_source
	preprocessed/              preprocess
	results/<node_type>/       every model stage

A DataManager journals the files it writes so that a failed node can undo
them together with its database transaction.
*/
package storage
