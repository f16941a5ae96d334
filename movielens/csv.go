// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package movielens

import (
	"io"
	"slices"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/movielens-linkpred/hetero"
	"github.com/pkg/errors"
)

// Column names of the CSV files.
const (
	MovieIDCol   = "movieId"
	TitleCol     = "title"
	GenresCol    = "genres"
	UserIDCol    = "userId"
	RatingCol    = "rating"
	TimestampCol = "timestamp"
)

// GenreSeparator separates the genres of a movie in the genres column.
const GenreSeparator = "|"

var (
	moviesFieldTypes = map[string]series.Type{
		MovieIDCol: series.Int,
		TitleCol:   series.String,
		GenresCol:  series.String,
	}
	ratingsFieldTypes = map[string]series.Type{
		UserIDCol:    series.Int,
		MovieIDCol:   series.Int,
		RatingCol:    series.Float,
		TimestampCol: series.Int,
	}
)

// readCSV reads a CSV with header into a DataFrame, checking that all the given columns are present.
func readCSV(r io.Reader, fieldTypes map[string]series.Type) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r, dataframe.HasHeader(true), dataframe.DetectTypes(false),
		dataframe.WithTypes(fieldTypes))
	if df.Err != nil {
		return df, errors.Wrap(df.Err, "failed to read CSV")
	}
	names := df.Names()
	for col := range fieldTypes {
		if !slices.Contains(names, col) {
			return df, errors.Errorf("CSV is missing column %q, got columns %q", col, names)
		}
	}
	return df, nil
}

// Parse the movies and ratings CSV contents into a Dataset.
//
// Every row of movies becomes a movie node, in file order, with multi-hot genre features. If embedder is
// not nil, the movie titles are embedded and the movie features are the title embedding followed by the
// genres. Users are numbered in order of first appearance in ratings, and every rating becomes an edge of the
// Rates relation, labeled with the rating truncated to an integer and with the rating timestamp.
func Parse(movies, ratings io.Reader, embedder TitleEmbedder) (*Dataset, error) {
	ds := &Dataset{Graph: hetero.New()}

	// Movies.
	moviesDF, err := readCSV(movies, moviesFieldTypes)
	if err != nil {
		return nil, errors.WithMessage(err, "parsing movies")
	}
	ds.MovieIDs, err = moviesDF.Col(MovieIDCol).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing movies column %q", MovieIDCol)
	}
	movieIndex := make(map[int]int32, len(ds.MovieIDs))
	for idx, id := range ds.MovieIDs {
		if _, found := movieIndex[id]; found {
			return nil, errors.Errorf("movies: duplicate %s %d in row %d", MovieIDCol, id, idx+1)
		}
		movieIndex[id] = int32(idx)
	}
	var features []float32
	ds.Genres, features = genreFeatures(moviesDF.Col(GenresCol).Records())
	if embedder != nil && len(ds.MovieIDs) > 0 {
		titles := moviesDF.Col(TitleCol).Records()
		embeddings, dim, err := embedder.Embed(titles)
		if err != nil {
			return nil, errors.WithMessagef(err, "embedding movie titles with %q", embedder.Name())
		}
		if dim <= 0 || len(embeddings) != dim*len(titles) {
			return nil, errors.Errorf("title embedder %q returned %d values of dimension %d for %d titles",
				embedder.Name(), len(embeddings), dim, len(titles))
		}
		features = concatColumns(embeddings, dim, features, len(ds.Genres), len(titles))
		ds.TitleModel = embedder.Name()
		ds.TitleDim = dim
	}
	movieNodes := ds.Graph.Node(MovieNode)
	if numCols := ds.TitleDim + len(ds.Genres); numCols > 0 {
		if err = movieNodes.SetFeatures(features, numCols); err != nil {
			return nil, err
		}
	} else {
		movieNodes.Count = len(ds.MovieIDs)
	}

	// Ratings.
	ratingsDF, err := readCSV(ratings, ratingsFieldTypes)
	if err != nil {
		return nil, errors.WithMessage(err, "parsing ratings")
	}
	userIDs, err := ratingsDF.Col(UserIDCol).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing ratings column %q", UserIDCol)
	}
	ratedMovieIDs, err := ratingsDF.Col(MovieIDCol).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing ratings column %q", MovieIDCol)
	}
	timestamps, err := ratingsDF.Col(TimestampCol).Int()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing ratings column %q", TimestampCol)
	}
	values := ratingsDF.Col(RatingCol).Float()

	numRatings := len(userIDs)
	es := ds.Graph.Edge(Rates)
	es.Src = make([]int32, numRatings)
	es.Dst = make([]int32, numRatings)
	es.Label = make([]int32, numRatings)
	es.Time = make([]int64, numRatings)
	userIndex := make(map[int]int32)
	for row := range numRatings {
		userIdx, found := userIndex[userIDs[row]]
		if !found {
			userIdx = int32(len(ds.UserIDs))
			userIndex[userIDs[row]] = userIdx
			ds.UserIDs = append(ds.UserIDs, userIDs[row])
		}
		movieIdx, found := movieIndex[ratedMovieIDs[row]]
		if !found {
			return nil, errors.Errorf("ratings row %d: unknown %s %d", row+1, MovieIDCol, ratedMovieIDs[row])
		}
		rating := values[row]
		if !(rating >= 0) {
			return nil, errors.Errorf("ratings row %d: invalid rating %g", row+1, rating)
		}
		es.Src[row] = userIdx
		es.Dst[row] = movieIdx
		es.Label[row] = int32(rating)
		es.Time[row] = int64(timestamps[row])
	}
	ds.Graph.Node(UserNode).Count = len(ds.UserIDs)

	if err = ds.Graph.Validate(); err != nil {
		return nil, errors.WithMessage(err, "parsed MovieLens graph is invalid")
	}
	return ds, nil
}

// genreFeatures returns the sorted list of genres and the row-major multi-hot matrix of genres per movie.
func genreFeatures(genresPerMovie []string) (genres []string, features []float32) {
	split := make([][]string, len(genresPerMovie))
	genreSet := make(map[string]bool)
	for i, field := range genresPerMovie {
		if field == "" {
			continue
		}
		split[i] = strings.Split(field, GenreSeparator)
		for _, genre := range split[i] {
			genreSet[genre] = true
		}
	}
	genres = make([]string, 0, len(genreSet))
	for genre := range genreSet {
		genres = append(genres, genre)
	}
	slices.Sort(genres)
	if len(genres) == 0 {
		return nil, nil
	}
	genreIdx := make(map[string]int, len(genres))
	for i, genre := range genres {
		genreIdx[genre] = i
	}
	dim := len(genres)
	features = make([]float32, len(genresPerMovie)*dim)
	for i, movieGenres := range split {
		for _, genre := range movieGenres {
			features[i*dim+genreIdx[genre]] = 1
		}
	}
	return
}

// concatColumns joins, row by row, the row-major matrices a (aDim columns) and b (bDim columns), both with
// numRows rows.
func concatColumns(a []float32, aDim int, b []float32, bDim int, numRows int) []float32 {
	dim := aDim + bDim
	out := make([]float32, numRows*dim)
	for row := range numRows {
		copy(out[row*dim:], a[row*aDim:(row+1)*aDim])
		copy(out[row*dim+aDim:], b[row*bDim:(row+1)*bDim])
	}
	return out
}
