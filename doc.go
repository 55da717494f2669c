// Package grove provides ensemble learning for Go: bagging, random
// forests, and voting classifiers over pluggable base estimators.
//
// Any model exposing Fit and Predict over gonum matrices can serve as an
// ensemble member; classifiers additionally expose PredictProba and
// Classes for soft voting. Ensemble members train in parallel on
// bootstrap resamples drawn from deterministic per-member random
// sub-streams, so a fixed seed reproduces the ensemble exactly.
//
// # Quick Start
//
// Bagging 200 decision trees on a synthetic dataset:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/grove-ml/grove/core/model"
//	    "github.com/grove-ml/grove/dataset"
//	    "github.com/grove-ml/grove/ensemble"
//	    "github.com/grove-ml/grove/tree"
//	)
//
//	func main() {
//	    d, err := dataset.MakeMoons(500, 0.3, 42)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    clf := ensemble.NewBaggingClassifier(
//	        func() model.Estimator {
//	            return tree.NewDecisionTreeClassifier(tree.WithMaxDepth(6))
//	        },
//	        ensemble.WithNEstimators(200),
//	        ensemble.WithOOBScore(true),
//	        ensemble.WithRandomState(42),
//	    )
//	    if err := clf.Fit(d.X, d.YMatrix()); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    oob, skipped, err := clf.GetOOBScore()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Printf("oob accuracy: %.3f (%d rows skipped)\n", oob, skipped)
//	}
//
// # Packages
//
//   - ensemble: BaggingClassifier, BaggingRegressor,
//     RandomForestClassifier, VotingClassifier
//   - tree: CART decision trees (classifier and regressor)
//   - linear_model: logistic regression
//   - dataset: synthetic data generators and train/test splitting
//   - metrics: accuracy, confusion matrix, AUC, MSE, RMSE, MAE, R²
//   - preprocessing: StandardScaler, MinMaxScaler
//   - core/model: capability interfaces, fitted-state management,
//     persistence
//   - core/parallel: bounded worker fan-out used by ensemble training
//   - pkg/errors, pkg/log: structured errors and logging
//
// # Out-of-bag evaluation
//
// Each bootstrap resample leaves roughly 36.8% of the training rows
// unseen by its member. OOBScore aggregates, for every training row,
// only the members that never saw it, giving a generalization estimate
// without a held-out set. Rows every member saw are skipped and counted;
// the skipped count is always reported alongside the score.
package grove
